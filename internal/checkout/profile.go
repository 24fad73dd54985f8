package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fjod/grocery-cart/internal/domain"
	"github.com/fjod/grocery-cart/internal/storage"
)

// Profile is the signed-in buyer as the storefront keeps it under the "user"
// key. Either ID or CustomerID identifies the buyer.
type Profile struct {
	ID           FlexInt    `json:"id,omitempty"`
	CustomerID   FlexInt    `json:"customerId,omitempty"`
	Name         string     `json:"name,omitempty"`
	Phone        FlexString `json:"phoneNumber,omitempty"`
	AddressLine1 string     `json:"addressLine1,omitempty"`
	AddressLine2 string     `json:"addressLine2,omitempty"`
	AddressLine3 string     `json:"addressLine3,omitempty"`
	PostalCode   FlexString `json:"pincode,omitempty"`
}

// BuyerID prefers id over customerId. Zero means unresolved.
func (p Profile) BuyerID() int64 {
	if p.ID != 0 {
		return int64(p.ID)
	}
	return int64(p.CustomerID)
}

// Prefill fills the blank fields of addr from the profile.
func (p Profile) Prefill(addr domain.Address) domain.Address {
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = src
		}
	}
	fill(&addr.Name, p.Name)
	fill(&addr.Phone, string(p.Phone))
	fill(&addr.Line1, p.AddressLine1)
	fill(&addr.Line2, p.AddressLine2)
	fill(&addr.Line3, p.AddressLine3)
	fill(&addr.PostalCode, string(p.PostalCode))
	return addr
}

// FlexInt accepts a JSON number or a numeric string. Anything else decodes to 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = FlexInt(n)
	return nil
}

// FlexString accepts a JSON string or number and keeps its text.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Profiles reads and writes buyer profiles in session storage.
type Profiles struct {
	storage storage.Storage
}

func NewProfiles(st storage.Storage) *Profiles {
	return &Profiles{storage: st}
}

// Get returns the stored profile, or ok=false when there is none or it does
// not parse.
func (p *Profiles) Get(ctx context.Context, origin string) (Profile, bool) {
	data, err := p.storage.Get(ctx, storage.Key(storage.ProfileKey, origin))
	if err != nil {
		return Profile{}, false
	}
	var prof Profile
	if err := json.Unmarshal(data, &prof); err != nil {
		return Profile{}, false
	}
	return prof, true
}

func (p *Profiles) Put(ctx context.Context, origin string, prof Profile) error {
	data, err := json.Marshal(prof)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return p.storage.Set(ctx, storage.Key(storage.ProfileKey, origin), data)
}

func (p *Profiles) Delete(ctx context.Context, origin string) error {
	err := p.storage.Delete(ctx, storage.Key(storage.ProfileKey, origin))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil
	}
	return err
}
