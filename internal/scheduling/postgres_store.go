package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, clinic_id, patient_id, patient_name, appointment_type, start_time, end_time,
	status, assigned_vet, room_number, notes, reason_for_visit, required_equipment,
	followup_required, checkin_time, checkout_time, created_at, updated_at`

// PostgresStore persists appointments in the appointments table.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("scheduling: db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, appt *Appointment) error {
	apptType, equipment, err := encodeJSONColumns(appt)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`
	_, err = s.db.Exec(ctx, query,
		appt.ID, appt.ClinicID, appt.PatientID, appt.PatientName, apptType,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.AssignedVet, appt.RoomNumber,
		appt.Notes, appt.ReasonForVisit, equipment, appt.FollowupRequired,
		appt.CheckinTime, appt.CheckoutTime, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, appt *Appointment) error {
	apptType, equipment, err := encodeJSONColumns(appt)
	if err != nil {
		return err
	}
	query := `
		UPDATE appointments
		SET patient_id = $3, patient_name = $4, appointment_type = $5, start_time = $6, end_time = $7,
			status = $8, assigned_vet = $9, room_number = $10, notes = $11, reason_for_visit = $12,
			required_equipment = $13, followup_required = $14, checkin_time = $15, checkout_time = $16,
			updated_at = $17
		WHERE clinic_id = $1 AND id = $2
	`
	tag, err := s.db.Exec(ctx, query,
		appt.ClinicID, appt.ID, appt.PatientID, appt.PatientName, apptType,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.AssignedVet, appt.RoomNumber,
		appt.Notes, appt.ReasonForVisit, equipment, appt.FollowupRequired,
		appt.CheckinTime, appt.CheckoutTime, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, clinicID, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE clinic_id = $1 AND id = $2`
	appt, err := scanAppointment(s.db.QueryRow(ctx, query, clinicID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scheduling: get appointment: %w", err)
	}
	return appt, nil
}

func (s *PostgresStore) ListByClinic(ctx context.Context, clinicID string) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE clinic_id = $1 ORDER BY created_at, id`
	rows, err := s.db.Query(ctx, query, clinicID)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func encodeJSONColumns(appt *Appointment) ([]byte, []byte, error) {
	apptType, err := json.Marshal(appt.AppointmentType)
	if err != nil {
		return nil, nil, fmt.Errorf("scheduling: marshal appointment type: %w", err)
	}
	equipment := appt.RequiredEquipment
	if equipment == nil {
		equipment = []string{}
	}
	equipmentJSON, err := json.Marshal(equipment)
	if err != nil {
		return nil, nil, fmt.Errorf("scheduling: marshal equipment: %w", err)
	}
	return apptType, equipmentJSON, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt      Appointment
		status    string
		apptType  []byte
		equipment []byte
	)
	if err := row.Scan(
		&appt.ID, &appt.ClinicID, &appt.PatientID, &appt.PatientName, &apptType,
		&appt.StartTime, &appt.EndTime, &status, &appt.AssignedVet, &appt.RoomNumber,
		&appt.Notes, &appt.ReasonForVisit, &equipment, &appt.FollowupRequired,
		&appt.CheckinTime, &appt.CheckoutTime, &appt.CreatedAt, &appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Status = Status(status)
	if len(apptType) > 0 {
		if err := json.Unmarshal(apptType, &appt.AppointmentType); err != nil {
			return nil, fmt.Errorf("decode appointment type: %w", err)
		}
	}
	if len(equipment) > 0 {
		if err := json.Unmarshal(equipment, &appt.RequiredEquipment); err != nil {
			return nil, fmt.Errorf("decode equipment: %w", err)
		}
		if len(appt.RequiredEquipment) == 0 {
			appt.RequiredEquipment = nil
		}
	}
	return &appt, nil
}
