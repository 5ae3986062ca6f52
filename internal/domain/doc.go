// Package domain defines the data models and contracts shared between the
// session core and its host application. It contains plain types and
// interfaces only.
package domain
