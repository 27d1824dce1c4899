package models

// Project is a collection of issues known to the store.
type Project struct {
	Name       string `json:"name"`
	IssueCount int    `json:"issue_count"`
	OpenCount  int    `json:"open_count"`
}
