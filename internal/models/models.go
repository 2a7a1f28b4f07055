package models

import "time"

// Station is a charging site with a fixed number of fungible ports.
type Station struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Address        string    `db:"address" json:"address"`
	Latitude       float64   `db:"latitude" json:"latitude"`
	Longitude      float64   `db:"longitude" json:"longitude"`
	TotalPorts     int       `db:"total_ports" json:"total_ports"`
	AvailablePorts int       `db:"available_ports" json:"available_ports"`
	CostPerKWh     float64   `db:"cost_per_kwh" json:"cost_per_kwh"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"-"`
	UpdatedAt      time.Time `db:"updated_at" json:"-"`
}

// RefreshStatus derives the status from the availability count. Offline is
// set by operators and is never overridden here.
func (s *Station) RefreshStatus() {
	if s.Status == StationStatusOffline {
		return
	}
	if s.AvailablePorts <= 0 {
		s.Status = StationStatusBusy
		return
	}
	s.Status = StationStatusOnline
}

// Reservation holds one port of a station for one user.
type Reservation struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	StationID  string     `db:"station_id" json:"station_id"`
	PortNumber int        `db:"port_number" json:"port_number"`
	StartTime  time.Time  `db:"start_time" json:"start_time"`
	EndTime    *time.Time `db:"end_time" json:"end_time"`
	Status     string     `db:"status" json:"status"`
}

// IsPending reports whether the reservation still holds its port.
func (r *Reservation) IsPending() bool {
	return r.Status == ReservationStatusPending
}

// ReservationView is a reservation decorated for listing.
type ReservationView struct {
	Reservation
	StationName string `json:"station_name"`
}

// Transaction records a settlement payment.
type Transaction struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	ReservationID string    `db:"reservation_id" json:"reservation_id"`
	Amount        float64   `db:"amount" json:"amount"`
	Status        string    `db:"status" json:"status"`
	Timestamp     time.Time `db:"created_at" json:"timestamp"`
}

// User is an account. PasswordHash is never serialized.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Phone        string    `json:"phone"`
	Profile      Profile   `json:"personalized_profile"`
	Vehicles     []Vehicle `json:"vehicles"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds user charging preferences.
type Profile struct {
	PreferredChargingSpeed string `json:"preferred_charging_speed"`
	NotificationEmail      bool   `json:"notification_email"`
}

type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
}

// Station statuses
const (
	StationStatusOnline  = "online"
	StationStatusBusy    = "busy"
	StationStatusOffline = "offline"
)

// Reservation statuses
const (
	ReservationStatusPending   = "pending"
	ReservationStatusCompleted = "completed"
	ReservationStatusCancelled = "cancelled"
)

// Transaction statuses
const (
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Charging speeds
const (
	ChargingSpeedFast     = "fast"
	ChargingSpeedStandard = "standard"
)
