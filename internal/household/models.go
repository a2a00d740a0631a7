// Package household instantiates the bulk pipeline for the household
// registry, including the household member child collection.
package household

import "registrar/internal/registry/models"

// Household is one registered household. Members live in their own table and
// are hydrated in a single batched query on search.
type Household struct {
	models.Entity
	LocalityCode string   `json:"localityCode"`
	MemberCount  int      `json:"memberCount"`
	Members      []Member `json:"members,omitempty"`
}

// Member is the one-to-many child row of a household. Members carry their
// own client reference id; server ids are assigned during enrichment
// alongside the parent's.
type Member struct {
	Id                string `json:"id,omitempty"`
	ClientReferenceId string `json:"clientReferenceId"`
	HouseholdId       string `json:"householdId,omitempty"`
	IndividualId      string `json:"individualId"`
	IsHeadOfHousehold bool   `json:"isHeadOfHousehold"`
}

// SearchCriteria is the household search surface.
type SearchCriteria struct {
	models.SearchCriteria
	LocalityCode string `json:"localityCode,omitempty"`
}
