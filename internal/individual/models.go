// Package individual instantiates the bulk pipeline for the individual
// registry.
package individual

import "registrar/internal/registry/models"

// Individual is one registered person.
type Individual struct {
	models.Entity
	GivenName    string `json:"givenName"`
	FamilyName   string `json:"familyName,omitempty"`
	DateOfBirth  string `json:"dateOfBirth,omitempty"`
	Gender       string `json:"gender,omitempty"`
	MobileNumber string `json:"mobileNumber,omitempty"`
	LocalityCode string `json:"localityCode,omitempty"`
}

// SearchCriteria is the individual search surface.
type SearchCriteria struct {
	models.SearchCriteria
	GivenName    string `json:"givenName,omitempty"`
	MobileNumber string `json:"mobileNumber,omitempty"`
	LocalityCode string `json:"localityCode,omitempty"`
}
