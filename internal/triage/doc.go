// Package triage provides the business boundary for emergency alert triage.
// It defines the Engine (intake validation, high severity capacity, ID
// generation, lifecycle transitions), the Store interface (ordered
// persistence) and the domain model.
package triage
