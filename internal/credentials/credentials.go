// Package credentials hands decrypted ad-platform credentials to the importer.
package credentials

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/YannKr/adimport/internal/db"
	"github.com/YannKr/adimport/internal/model"
)

const ProviderMeta = "meta"

var (
	ErrNoIntegration = errors.New("meta integration not connected for brand")
	ErrNoAdAccount   = errors.New("no ad account configured for brand")
	ErrDecrypt       = errors.New("cannot decrypt stored access token")
)

// Box seals and opens access tokens with a key derived from a passphrase.
// Stored form is base64(nonce || secretbox).
type Box struct {
	key [32]byte
}

func NewBox(secret string) *Box {
	return &Box{key: sha256.Sum256([]byte(secret))}
}

func (b *Box) Seal(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *Box) Open(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < 24+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	out, ok := secretbox.Open(nil, raw[24:], &nonce, &b.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}

// Provider reads brand integrations from the database.
type Provider struct {
	DB  *sql.DB
	Box *Box
}

func (p *Provider) GetBrandMetaCredentials(ctx context.Context, brandID string) (model.MetaCredentials, error) {
	bi, err := db.GetBrandIntegration(ctx, p.DB, brandID, ProviderMeta)
	if err != nil {
		return model.MetaCredentials{}, fmt.Errorf("load integration: %w", err)
	}
	if bi == nil || bi.AccessTokenEnc == "" {
		return model.MetaCredentials{}, ErrNoIntegration
	}
	if bi.AdAccountID == "" {
		return model.MetaCredentials{}, ErrNoAdAccount
	}
	token, err := p.Box.Open(bi.AccessTokenEnc)
	if err != nil {
		return model.MetaCredentials{}, err
	}
	return model.MetaCredentials{
		AccessToken:   token,
		AdAccountID:   bi.AdAccountID,
		DefaultPageID: bi.DefaultPageID,
		PageID:        bi.PageID,
		Pages:         bi.Pages,
		ManualPages:   bi.ManualPages,
	}, nil
}

// Store seals token and saves the integration for brandID.
func (p *Provider) Store(ctx context.Context, brandID, token string, bi model.BrandIntegration) error {
	enc, err := p.Box.Seal(token)
	if err != nil {
		return err
	}
	bi.BrandID = brandID
	bi.Provider = ProviderMeta
	bi.AccessTokenEnc = enc
	return db.UpsertBrandIntegration(ctx, p.DB, &bi)
}
