package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Issue categories recognized at report time
const (
	CategoryPothole           = "Pothole"
	CategoryBrokenStreetlight = "Broken Streetlight"
	CategoryGarbageOverflow   = "Garbage Overflow"
	CategoryWaterLeakage      = "Water Leakage"
	CategoryRoadDamage        = "Road Damage"
	CategoryOther             = "Other"
)

// Issue statuses. An issue starts Pending and is moved by an admin; any
// status may move to any other status.
const (
	StatusPending    = "Pending"
	StatusVerified   = "Verified"
	StatusInProgress = "In Progress"
	StatusResolved   = "Resolved"
	StatusRejected   = "Rejected"
)

// Issue priorities
const (
	PriorityLow      = "Low"
	PriorityMedium   = "Medium"
	PriorityHigh     = "High"
	PriorityCritical = "Critical"
)

// Statuses lists every issue status in display order
var Statuses = []string{StatusPending, StatusVerified, StatusInProgress, StatusResolved, StatusRejected}

// Categories lists every issue category in display order
var Categories = []string{
	CategoryPothole,
	CategoryBrokenStreetlight,
	CategoryGarbageOverflow,
	CategoryWaterLeakage,
	CategoryRoadDamage,
	CategoryOther,
}

// Priorities lists every issue priority in display order
var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

// Location is a GeoJSON point stored so mongo's 2dsphere index can serve
// $near queries. Coordinates are [longitude, latitude].
type Location struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// NewLocation builds a GeoJSON point from a longitude/latitude pair
func NewLocation(longitude, latitude float64) Location {
	return Location{Type: "Point", Coordinates: []float64{longitude, latitude}}
}

// Issue holds the structure for the issues collection in mongo
type Issue struct {
	ID          primitive.ObjectID `json:"_id" bson:"_id,omitempty"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	Category    string             `json:"category" bson:"category"`
	Location    Location           `json:"location" bson:"location"`
	Address     string             `json:"address" bson:"address"`
	Image       string             `json:"image" bson:"image"`
	Status      string             `json:"status" bson:"status"`
	Priority    string             `json:"priority" bson:"priority"`
	ReportedBy  primitive.ObjectID `json:"reportedBy" bson:"reportedBy"`
	AdminNotes  string             `json:"adminNotes" bson:"adminNotes"`
	ResolvedAt  *time.Time         `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ValidCategory reports whether the given category is a recognized enum value
func ValidCategory(category string) bool {
	return contains(Categories, category)
}

// ValidStatus reports whether the given status is a recognized enum value
func ValidStatus(status string) bool {
	return contains(Statuses, status)
}

// ValidPriority reports whether the given priority is a recognized enum value
func ValidPriority(priority string) bool {
	return contains(Priorities, priority)
}

// ValidCoordinates reports whether coords is a [longitude, latitude] pair
// within valid ranges
func ValidCoordinates(coords []float64) bool {
	if len(coords) != 2 {
		return false
	}
	return coords[0] >= -180 && coords[0] <= 180 && coords[1] >= -90 && coords[1] <= 90
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
