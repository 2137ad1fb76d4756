package records

import (
	"encoding/json"
	"strings"
)

// RegisterEnvelope is the outer shape of every financial-register response.
// Status codes are strings like "FSR-API-04-01-00"; a "not found" status is a
// valid empty result, not an error.
type RegisterEnvelope struct {
	Status  string          `json:"Status"`
	Message string          `json:"Message"`
	Data    json.RawMessage `json:"Data"`
}

// Recognised reports whether the response came from the register API at all.
func (e *RegisterEnvelope) Recognised() bool {
	return strings.HasPrefix(e.Status, "FSR-API-")
}

// HasData reports whether the envelope carries a usable Data payload.
func (e *RegisterEnvelope) HasData() bool {
	return e.Recognised() && len(e.Data) > 0 && string(e.Data) != "null"
}

// SearchHit is one row of the register search endpoint.
type SearchHit struct {
	ReferenceNumber string `json:"Reference Number"`
	Name            string `json:"Name"`
	BusinessType    string `json:"Type of business or Individual"`
	Status          string `json:"Status"`
}

// FirmDetails is the core firm resource.
type FirmDetails struct {
	OrganisationName      string `json:"Organisation Name"`
	Status                string `json:"Status"`
	SubStatus             string `json:"Sub-Status"`
	BusinessType          string `json:"Business Type"`
	CompaniesHouseNumber  string `json:"Companies House Number"`
	ClientMoneyPermission string `json:"Client Money Permission"`
	PSDStatus             string `json:"PSD / EMD Status"`
	MLRsStatus            string `json:"MLRs Status"`
}

// FirmName is one current or historical name of a firm.
type FirmName struct {
	Name string `json:"Name"`
}

// FirmNameGroup is the Names sub-resource's grouping of current and
// previous names.
type FirmNameGroup struct {
	Current  []FirmName `json:"Current Names"`
	Previous []FirmName `json:"Previous Names"`
}

// FirmAddress is one address row of the Address sub-resource.
type FirmAddress struct {
	AddressType  string `json:"Address Type"`
	AddressLine1 string `json:"Address Line 1"`
	AddressLine2 string `json:"Address Line 2"`
	Town         string `json:"Town"`
	County       string `json:"County"`
	Postcode     string `json:"Postcode"`
	Country      string `json:"Country"`
	PhoneNumber  string `json:"Phone Number"`
	Website      string `json:"Website Address"`
}

// FirmIndividual is one person attached to a firm.
type FirmIndividual struct {
	Name   string `json:"Name"`
	IRN    string `json:"IRN"`
	Status string `json:"Status"`
}

// DisciplinaryAction is one row of a disciplinary history sub-resource.
type DisciplinaryAction struct {
	ActionType      string `json:"TypeofAction"`
	EnforcementType string `json:"EnforcementType"`
	Description     string `json:"TypeofDescription"`
	EffectiveFrom   string `json:"ActionEffectiveFrom"`
}

// FirmProfile is the composite record built from the core firm resource and
// its sub-resources, merged before indexing.
type FirmProfile struct {
	FRN                   string           `json:"frn"`
	FirmName              string           `json:"firm_name"`
	TradingNames          []string         `json:"trading_names,omitempty"`
	Status                string           `json:"firm_status,omitempty"`
	SubStatus             string           `json:"sub_status,omitempty"`
	BusinessType          string           `json:"business_type,omitempty"`
	CompaniesHouseNumber  string           `json:"companies_house_number,omitempty"`
	ClientMoneyPermission string           `json:"client_money_permission,omitempty"`
	PSDStatus             string           `json:"psd_status,omitempty"`
	MLRsStatus            string           `json:"mlrs_status,omitempty"`
	Permissions           []string         `json:"permissions,omitempty"`
	AddressLine1          string           `json:"address_line_1,omitempty"`
	City                  string           `json:"city,omitempty"`
	County                string           `json:"county,omitempty"`
	Postcode              string           `json:"postcode,omitempty"`
	Country               string           `json:"country,omitempty"`
	Telephone             string           `json:"telephone,omitempty"`
	Website               string           `json:"website,omitempty"`
	KeyIndividuals        []FirmIndividual `json:"key_individuals,omitempty"`
	Requirements          []string         `json:"regulatory_requirements,omitempty"`
	DisciplinaryHistory   []string         `json:"disciplinary_history,omitempty"`
}

// DocumentKey implements Document. The FRN is the register's own stable key.
func (f *FirmProfile) DocumentKey() string {
	return "firm_" + f.FRN
}

// Validate implements Document.
func (f *FirmProfile) Validate() error {
	if f.FRN == "" {
		return &ValidationError{Kind: "firm", Reason: "missing firm reference number"}
	}
	if f.FirmName == "" {
		return &ValidationError{Kind: "firm", Reason: "missing firm name"}
	}
	return nil
}
