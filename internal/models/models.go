package models

import (
	"encoding/json"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerBusy      WorkerStatus = "busy"
	WorkerOffline   WorkerStatus = "offline"
	WorkerOnBreak   WorkerStatus = "on_break"
)

type Worker struct {
	ID              string       `json:"id"`
	UserID          string       `json:"user_id"`
	FullName        string       `json:"full_name"`
	Rating          float64      `json:"rating"` // 0..5
	ReviewCount     int          `json:"review_count"`
	Location        Coord        `json:"location"`
	Services        []string     `json:"services"`
	BasePrice       float64      `json:"base_price"`
	Status          WorkerStatus `json:"status"`
	ServiceRadiusKm float64      `json:"service_radius_km"`
	HourlyRate      *float64     `json:"hourly_rate,omitempty"`
	WorkStart       string       `json:"work_start"` // HH:MM
	WorkEnd         string       `json:"work_end"`
	WorksWeekends   bool         `json:"works_weekends"`
	DistanceKm      *float64     `json:"distance_km,omitempty"`

	// RawLocation is the location as the remote store encoded it.
	// Discovery decodes it into Location and clears it.
	RawLocation json.RawMessage `json:"-"`
}

// NearbyCandidate is a row of the find_nearby_workers RPC.
type NearbyCandidate struct {
	WorkerID   string  `json:"worker_id"`
	UserID     string  `json:"user_id"`
	FullName   string  `json:"full_name"`
	Rating     float64 `json:"rating"`
	DistanceKm float64 `json:"distance_km"`
	BasePrice  float64 `json:"base_price"`
}

type AddressType string

const (
	AddressHome  AddressType = "home"
	AddressWork  AddressType = "work"
	AddressOther AddressType = "other"
)

type Address struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	Label      string      `json:"label"`
	Address    string      `json:"address"`
	City       string      `json:"city"`
	PostalCode string      `json:"postal_code"`
	Type       AddressType `json:"type"`
	IsDefault  bool        `json:"is_default"`
	Location   *Coord      `json:"location,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AddressInput is the payload for a new address.
type AddressInput struct {
	Label      string      `json:"label"`
	Address    string      `json:"address"`
	City       string      `json:"city"`
	PostalCode string      `json:"postal_code"`
	Type       AddressType `json:"type"`
	Location   *Coord      `json:"location,omitempty"`
}

// AddressPatch carries the fields of an address update; nil fields are left as is.
type AddressPatch struct {
	Label      *string      `json:"label,omitempty"`
	Address    *string      `json:"address,omitempty"`
	City       *string      `json:"city,omitempty"`
	PostalCode *string      `json:"postal_code,omitempty"`
	Type       *AddressType `json:"type,omitempty"`
	IsDefault  *bool        `json:"is_default,omitempty"`
	Location   *Coord       `json:"location,omitempty"`
}

type ServiceCategory string

const (
	CategoryBasic     ServiceCategory = "basic"
	CategoryDeluxe    ServiceCategory = "deluxe"
	CategoryPremium   ServiceCategory = "premium"
	CategorySpecialty ServiceCategory = "specialty"
)

type Service struct {
	ID              string          `json:"id"`
	Key             string          `json:"key"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	BasePrice       float64         `json:"base_price"`
	Category        ServiceCategory `json:"category"`
	DurationMinutes int             `json:"duration_minutes"`
	Active          bool            `json:"active"`
}

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses that occupy a worker's schedule.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}

type Vehicle struct {
	Type  string `json:"type"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year,omitempty"`
	Color string `json:"color"`
	Plate string `json:"plate"`
}

type Booking struct {
	ID                string        `json:"id"`
	CustomerID        string        `json:"customer_id"`
	WorkerID          string        `json:"worker_id"`
	WorkerUserID      string        `json:"worker_user_id,omitempty"` // user account behind WorkerID
	ServiceID         string        `json:"service_id"`
	ScheduledDate     string        `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime     string        `json:"scheduled_time"` // HH:MM
	EstimatedDuration int           `json:"estimated_duration"`
	Status            BookingStatus `json:"status"`
	BasePrice         float64       `json:"base_price"`
	TotalPrice        float64       `json:"total_price"`
	Vehicle           Vehicle       `json:"vehicle"`
	ServiceAddress    string        `json:"service_address"`
	Location          *Coord        `json:"location,omitempty"`
	PaymentMethod     string        `json:"payment_method"`
	PaymentIntentID   string        `json:"payment_intent_id,omitempty"`

	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CustomerNotes      string     `json:"customer_notes,omitempty"`
	WorkerNotes        string     `json:"worker_notes,omitempty"`

	CanRate       bool `json:"can_rate"`
	CanCancel     bool `json:"can_cancel"`
	CanReschedule bool `json:"can_reschedule"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBooking is the create-booking payload sent to the remote store.
type NewBooking struct {
	CustomerID        string  `json:"customer_id"`
	WorkerID          string  `json:"worker_id"`
	ServiceID         string  `json:"service_id"`
	ScheduledDate     string  `json:"scheduled_date"`
	ScheduledTime     string  `json:"scheduled_time"`
	EstimatedDuration int     `json:"estimated_duration"`
	BasePrice         float64 `json:"base_price"`
	TotalPrice        float64 `json:"total_price"`
	Vehicle           Vehicle `json:"vehicle"`
	ServiceAddress    string  `json:"service_address"`
	Location          *Coord  `json:"location,omitempty"`
	PaymentMethod     string  `json:"payment_method"`
	PaymentIntentID   string  `json:"payment_intent_id,omitempty"`
	CustomerNotes     string  `json:"customer_notes,omitempty"`
}

// BookingDraft is the not-yet-submitted booking held by the wizard.
type BookingDraft struct {
	WorkerID        string  `json:"worker_id"`
	WorkerName      string  `json:"worker_name"`
	ServiceID       string  `json:"service_id"`
	BasePrice       float64 `json:"base_price"`
	DurationMinutes int     `json:"duration_minutes"`
	Address         string  `json:"address"`
	Location        *Coord  `json:"location,omitempty"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	Vehicle         Vehicle `json:"vehicle"`
	PaymentMethod   string  `json:"payment_method"`
	Notes           string  `json:"notes"`
	FinalPrice      float64 `json:"final_price"`
}

// DraftPatch carries wizard field updates; nil fields are left as is.
type DraftPatch struct {
	WorkerID        *string  `json:"worker_id,omitempty"`
	WorkerName      *string  `json:"worker_name,omitempty"`
	ServiceID       *string  `json:"service_id,omitempty"`
	BasePrice       *float64 `json:"base_price,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	Address         *string  `json:"address,omitempty"`
	Location        *Coord   `json:"location,omitempty"`
	Date            *string  `json:"date,omitempty"`
	Time            *string  `json:"time,omitempty"`
	Vehicle         *Vehicle `json:"vehicle,omitempty"`
	PaymentMethod   *string  `json:"payment_method,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

type BookingEventType string

const (
	EventBookingCreated     BookingEventType = "booking.created"
	EventBookingStatus      BookingEventType = "booking.status_changed"
	EventBookingRescheduled BookingEventType = "booking.rescheduled"
)

type BookingEvent struct {
	ID           string           `json:"id"`
	Type         BookingEventType `json:"type"`
	BookingID    string           `json:"booking_id"`
	CustomerID   string           `json:"customer_id"`
	WorkerID     string           `json:"worker_id"`
	WorkerUserID string           `json:"worker_user_id,omitempty"`
	Status       BookingStatus    `json:"status"`
	At           time.Time        `json:"at"`
}
