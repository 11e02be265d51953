package domain

import (
	"time"

	"github.com/google/uuid"
)

type Address struct {
	Street string `json:"streetAddress"`
	Unit   string `json:"aptUnit,omitempty"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zipCode"`
}

func (a Address) IsZero() bool {
	return a.Street == "" && a.Unit == "" && a.City == "" && a.State == "" && a.Zip == ""
}

type InstallPrefs struct {
	Date         string `json:"installDate,omitempty"`
	TimeWindow   string `json:"installTimeWindow,omitempty"`
	Instructions string `json:"specialInstructions,omitempty"`
}

// Order is the agent-entered form payload.
type Order struct {
	AgentName string `json:"agentName"`
	AgentID   string `json:"agentId"`

	CustomerName string `json:"customerName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	DateOfBirth  string `json:"dateOfBirth"`
	SSN          string `json:"ssn"`

	StreetAddress string `json:"streetAddress"`
	AptUnit       string `json:"aptUnit,omitempty"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zipCode"`

	MovedLastYear     bool   `json:"movedLastYear"`
	PrevStreetAddress string `json:"prevStreetAddress,omitempty"`
	PrevAptUnit       string `json:"prevAptUnit,omitempty"`
	PrevCity          string `json:"prevCity,omitempty"`
	PrevState         string `json:"prevState,omitempty"`
	PrevZipCode       string `json:"prevZipCode,omitempty"`

	SelectedProvider       string   `json:"selectedProvider"`
	SelectedPackage        string   `json:"selectedPackage"`
	SelectedDirectvPackage string   `json:"selectedDirectvPackage,omitempty"`
	SelectedAddOns         []string `json:"selectedAddOns"`

	Install InstallPrefs `json:"install"`

	ForceProvider bool `json:"forceProvider,omitempty"`
}

func (o Order) ServiceAddress() Address {
	return Address{Street: o.StreetAddress, Unit: o.AptUnit, City: o.City, State: o.State, Zip: o.ZipCode}
}

func (o Order) PreviousAddress() Address {
	return Address{Street: o.PrevStreetAddress, Unit: o.PrevAptUnit, City: o.PrevCity, State: o.PrevState, Zip: o.PrevZipCode}
}

// Submission is an accepted order. It is immutable once stored.
type Submission struct {
	ID             uuid.UUID `json:"id"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	Order
	SubmissionDate time.Time `json:"submissionDate"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
}

type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusDone    SubmissionStatus = "done"
	StatusDead    SubmissionStatus = "dead"
)

// SubmissionRecord is the stored outbox row around a submission.
type SubmissionRecord struct {
	Submission   Submission       `json:"submission"`
	Status       SubmissionStatus `json:"status"`
	Attempts     int              `json:"attempts"`
	LastError    string           `json:"lastError,omitempty"`
	ClaimedUntil *time.Time       `json:"claimedUntil,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	Steps        []StepRecord     `json:"steps,omitempty"`
}

type StepRecord struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}
