/*
 * Copyright (C) 2025 Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

// Package contact tracks the relying parties the agent has interacted with.
// A contact is recognized across sessions through identity correlation ids,
// e.g. a verifier's client id or redirect URI host.
package contact

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ErrNotFound is returned when no contact matches.
var ErrNotFound = errors.New("contact not found")

var _ schema.Tabler = (*Contact)(nil)
var _ schema.Tabler = (*Identity)(nil)

// Contact is a relying party the agent has interacted with.
type Contact struct {
	ID         string     `gorm:"primaryKey;column:id" json:"id"`
	Name       string     `gorm:"column:name" json:"name,omitempty"`
	CreatedAt  int64      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	Identities []Identity `gorm:"foreignKey:ContactID" json:"identities,omitempty"`
}

func (Contact) TableName() string {
	return "contact"
}

// Identity correlates a contact to an identifier seen in sessions.
type Identity struct {
	ID        string `gorm:"primaryKey;column:id" json:"id"`
	ContactID string `gorm:"column:contact_id" json:"-"`
	// CorrelationID is the identifier as it appears on the wire, e.g. a client_id.
	CorrelationID string `gorm:"column:correlation_id" json:"correlationId"`
	// DID is set when the identity is a DID.
	DID       string `gorm:"column:did" json:"did,omitempty"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Identity) TableName() string {
	return "contact_identity"
}

// Store persists contacts and their identities.
type Store struct {
	db *gorm.DB
}

// NewStore creates a contact store on the given database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Add creates a new contact with the given name and identities.
func (s *Store) Add(name string, identities ...Identity) (*Contact, error) {
	result := Contact{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().Unix(),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		for _, identity := range identities {
			if err := s.addIdentity(tx, result.ID, identity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(result.ID)
}

// AddIdentity attaches an identity to an existing contact.
// Adding an identity with a known correlation id is a no-op.
func (s *Store) AddIdentity(contactID string, identity Identity) error {
	return s.addIdentity(s.db, contactID, identity)
}

func (s *Store) addIdentity(tx *gorm.DB, contactID string, identity Identity) error {
	identity.ID = uuid.NewString()
	identity.ContactID = contactID
	identity.CreatedAt = time.Now().Unix()
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "correlation_id"}},
		DoNothing: true,
	}).Create(&identity).Error
}

// Get returns the contact with the given id, including its identities.
func (s *Store) Get(id string) (*Contact, error) {
	var result Contact
	err := s.db.Preload("Identities").First(&result, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FindByCorrelationID returns the contact that owns an identity with the given correlation id.
func (s *Store) FindByCorrelationID(correlationID string) (*Contact, error) {
	var identity Identity
	err := s.db.First(&identity, "correlation_id = ?", correlationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(identity.ContactID)
}

// List returns all contacts, including their identities, newest first.
func (s *Store) List() ([]Contact, error) {
	var results []Contact
	err := s.db.Preload("Identities").Order("created_at DESC").Find(&results).Error
	return results, err
}
