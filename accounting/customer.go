package accounting

import "time"

// Customer is the subset of the QuickBooks Customer entity the client
// reads and writes. Unknown fields returned by the API are dropped.
type Customer struct {
	ID                 string           `json:"Id,omitempty"`
	SyncToken          string           `json:"SyncToken,omitempty"`
	Sparse             bool             `json:"sparse,omitempty"`
	DisplayName        string           `json:"DisplayName,omitempty"`
	Title              string           `json:"Title,omitempty"`
	GivenName          string           `json:"GivenName,omitempty"`
	MiddleName         string           `json:"MiddleName,omitempty"`
	FamilyName         string           `json:"FamilyName,omitempty"`
	Suffix             string           `json:"Suffix,omitempty"`
	CompanyName        string           `json:"CompanyName,omitempty"`
	PrintOnCheckName   string           `json:"PrintOnCheckName,omitempty"`
	Notes              string           `json:"Notes,omitempty"`
	Active             *bool            `json:"Active,omitempty"`
	Balance            float64          `json:"Balance,omitempty"`
	PrimaryEmailAddr   *EmailAddress    `json:"PrimaryEmailAddr,omitempty"`
	PrimaryPhone       *TelephoneNumber `json:"PrimaryPhone,omitempty"`
	Mobile             *TelephoneNumber `json:"Mobile,omitempty"`
	BillAddr           *PhysicalAddress `json:"BillAddr,omitempty"`
	ShipAddr           *PhysicalAddress `json:"ShipAddr,omitempty"`
	MetaData           *MetaData        `json:"MetaData,omitempty"`
	FullyQualifiedName string           `json:"FullyQualifiedName,omitempty"`
}

type EmailAddress struct {
	Address string `json:"Address,omitempty"`
}

type TelephoneNumber struct {
	FreeFormNumber string `json:"FreeFormNumber,omitempty"`
}

type PhysicalAddress struct {
	ID                     string `json:"Id,omitempty"`
	Line1                  string `json:"Line1,omitempty"`
	Line2                  string `json:"Line2,omitempty"`
	City                   string `json:"City,omitempty"`
	CountrySubDivisionCode string `json:"CountrySubDivisionCode,omitempty"`
	PostalCode             string `json:"PostalCode,omitempty"`
	Country                string `json:"Country,omitempty"`
}

type MetaData struct {
	CreateTime      time.Time `json:"CreateTime"`
	LastUpdatedTime time.Time `json:"LastUpdatedTime"`
}

// IsActive treats a missing Active flag as active, which is how QuickBooks
// reports it.
func (c Customer) IsActive() bool {
	return c.Active == nil || *c.Active
}

type CustomerQuery struct {
	ActiveOnly    bool
	StartPosition int
	MaxResults    int
}

type CustomerPage struct {
	Customers     []Customer
	StartPosition int
	MaxResults    int
}

type customerEnvelope struct {
	Customer Customer `json:"Customer"`
}

type queryEnvelope struct {
	QueryResponse struct {
		Customer      []Customer `json:"Customer"`
		StartPosition int        `json:"startPosition"`
		MaxResults    int        `json:"maxResults"`
	} `json:"QueryResponse"`
}
