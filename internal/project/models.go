// Package project instantiates the bulk pipeline for the project registry.
// Projects form a tree; each row carries a denormalized dot-separated
// ancestor path so subtree queries never recurse.
package project

import "registrar/internal/registry/models"

// Project is one campaign project node.
type Project struct {
	models.Entity
	Name          string `json:"name"`
	ProjectTypeId string `json:"projectTypeId,omitempty"`
	ParentId      string `json:"parentId,omitempty"`
	Hierarchy     string `json:"hierarchy,omitempty"`
	StartDate     int64  `json:"startDate,omitempty"`
	EndDate       int64  `json:"endDate,omitempty"`
	LocalityCode  string `json:"localityCode,omitempty"`
}

// SearchCriteria is the project search surface.
type SearchCriteria struct {
	models.SearchCriteria
	Name          string `json:"name,omitempty"`
	ProjectTypeId string `json:"projectTypeId,omitempty"`
	ParentId      string `json:"parentId,omitempty"`
	LocalityCode  string `json:"localityCode,omitempty"`
	StartDate     int64  `json:"startDate,omitempty"`
}
