// File: tailortalk/handlers/bundle.go
package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Chat endpoints
	StartSession  gin.HandlerFunc
	HandleTurn    gin.HandlerFunc
	VoiceTurn     gin.HandlerFunc
	GetSession    gin.HandlerFunc
	CancelSession gin.HandlerFunc

	// Calendar queries
	AvailableSlots    gin.HandlerFunc
	UpcomingEvents    gin.HandlerFunc
	CheckAvailability gin.HandlerFunc

	Health gin.HandlerFunc
}
