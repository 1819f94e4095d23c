// Package importer turns validated rows into imported contacts. Every row
// is accounted for in the result: created, duplicate (with the winning row
// or the existing contact) or rejected (with the validation failure).
package importer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach-engine/internal/dedup"
	"github.com/ignite/outreach-engine/internal/domain"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
)

// Row is one inbound contact record.
type Row struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Industry string `json:"industry"`
	Title    string `json:"title,omitempty"`
	Company  string `json:"company,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// RowError describes a row that did not become a contact.
type RowError struct {
	Row    int    `json:"row"`
	Email  string `json:"email,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes an import batch. Row numbers are 1-based.
type Result struct {
	Created    []uuid.UUID `json:"created"`
	Duplicates []RowError  `json:"duplicates,omitempty"`
	Rejected   []RowError  `json:"rejected,omitempty"`
}

// Store is the persistence surface the importer needs.
type Store interface {
	CreateContact(ctx context.Context, c *domain.Contact) error
}

// Importer validates, dedups and persists contact batches.
type Importer struct {
	store   Store
	checker *dedup.Checker
	userID  int
	now     func() time.Time
}

// New creates an importer for one user identity.
func New(store Store, checker *dedup.Checker, userID int) *Importer {
	return &Importer{
		store:   store,
		checker: checker,
		userID:  userID,
		now:     time.Now,
	}
}

// SetClock overrides the importer's clock (for tests).
func (i *Importer) SetClock(now func() time.Time) { i.now = now }

// Import processes a batch of rows. Validation failures and duplicates do
// not abort the batch; valid unique rows are always persisted. Within the
// batch the first occurrence of an address wins.
func (i *Importer) Import(ctx context.Context, rows []Row) (*Result, error) {
	result := &Result{}

	emails := make([]string, len(rows))
	for n, row := range rows {
		emails[n] = row.Email
	}
	unique, batchDups := dedup.FilterBatch(emails)
	for _, d := range batchDups {
		result.Duplicates = append(result.Duplicates, RowError{Row: d.Row, Email: d.Email, Reason: d.Reason})
	}

	for _, n := range unique {
		row := rows[n]
		if reason := validateRow(row); reason != "" {
			result.Rejected = append(result.Rejected, RowError{Row: n + 1, Email: row.Email, Reason: reason})
			continue
		}

		email := domain.NormalizeEmail(row.Email)
		if err := i.checker.CheckEmail(ctx, email); err != nil {
			if !errors.Is(err, domain.ErrDuplicateContact) {
				// A store failure is not a duplicate; abort rather than drop
				// the row silently.
				return result, fmt.Errorf("checking row %d for duplicates: %w", n+1, err)
			}
			result.Duplicates = append(result.Duplicates, RowError{
				Row:    n + 1,
				Email:  email,
				Reason: fmt.Sprintf("contact with email %s already exists", email),
			})
			continue
		}

		now := i.now().UTC()
		contact := &domain.Contact{
			ID:        uuid.New(),
			UserID:    i.userID,
			Email:     email,
			Name:      strings.TrimSpace(row.Name),
			Industry:  strings.TrimSpace(row.Industry),
			Title:     strings.TrimSpace(row.Title),
			Company:   strings.TrimSpace(row.Company),
			Timezone:  row.Timezone,
			Status:    domain.ContactImported,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := i.store.CreateContact(ctx, contact); err != nil {
			return result, fmt.Errorf("creating contact for row %d: %w", n+1, err)
		}
		result.Created = append(result.Created, contact.ID)
	}

	logger.Info("contacts imported",
		"created", len(result.Created),
		"duplicates", len(result.Duplicates),
		"rejected", len(result.Rejected))
	return result, nil
}

// validateRow returns a rejection reason, or "" when the row is valid.
func validateRow(row Row) string {
	if strings.TrimSpace(row.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(row.Email) == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(domain.NormalizeEmail(row.Email)); err != nil {
		return "invalid email address"
	}
	if strings.TrimSpace(row.Industry) == "" {
		return "industry is required"
	}
	return ""
}
