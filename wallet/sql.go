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

package wallet

import (
	"context"
	"fmt"
	"time"

	ssi "github.com/nuts-foundation/go-did"
	"github.com/nuts-foundation/go-did/did"
	"github.com/nuts-foundation/go-did/vc"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/nuts-foundation/siop-op/wallet/logging"
)

var _ Wallet = (*sqlWallet)(nil)
var _ schema.Tabler = (*walletRecord)(nil)

type walletRecord struct {
	HolderDID    string `gorm:"primaryKey;column:holder_did"`
	CredentialID string `gorm:"primaryKey;column:credential_id"`
	// Raw holds the credential in its original wire format,
	// either a JSON document or a compact JWT string.
	Raw       string `gorm:"column:raw"`
	CreatedAt int64  `gorm:"column:created_at;autoCreateTime"`
}

func (walletRecord) TableName() string {
	return "wallet_credential"
}

// NewSQLWallet creates a Wallet that stores credentials in a SQL database.
func NewSQLWallet(db *gorm.DB) Wallet {
	return &sqlWallet{db: db}
}

type sqlWallet struct {
	db *gorm.DB
}

func (s sqlWallet) Put(_ context.Context, credentials ...vc.VerifiableCredential) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, credential := range credentials {
			subjectDID, err := ResolveSubjectDID(credential)
			if err != nil {
				return fmt.Errorf("unable to resolve subject DID from VC %s: %w", credential.ID, err)
			}
			record := walletRecord{
				HolderDID:    subjectDID.String(),
				CredentialID: credentialKey(credential),
				Raw:          credential.Raw(),
				CreatedAt:    time.Now().Unix(),
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s sqlWallet) List(_ context.Context, holderDID did.DID) ([]vc.VerifiableCredential, error) {
	var records []walletRecord
	err := s.db.Model(walletRecord{}).Where("holder_did = ?", holderDID.String()).Find(&records).Error
	if err != nil {
		return nil, err
	}
	results := make([]vc.VerifiableCredential, 0)
	for _, record := range records {
		verifiableCredential, err := vc.ParseVerifiableCredential(record.Raw)
		if err != nil {
			return nil, fmt.Errorf("unable to unmarshal credential %s: %w", record.CredentialID, err)
		}
		results = append(results, *verifiableCredential)
	}
	return results, nil
}

func (s sqlWallet) Remove(_ context.Context, holderDID did.DID, credentialID ssi.URI) error {
	result := s.db.Where("holder_did = ? AND credential_id = ?", holderDID.String(), credentialID.String()).Delete(&walletRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	logging.Log().
		WithField("credentialID", credentialID.String()).
		WithField("walletDID", holderDID.String()).
		Info("Removed credential from wallet")
	return nil
}

func (s sqlWallet) IsEmpty() (bool, error) {
	var count int64
	err := s.db.Model(walletRecord{}).Count(&count).Error
	return count == 0, err
}
