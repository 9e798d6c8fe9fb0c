package utils

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const CookieNameParticipantID = "participant_id"

// EnsureParticipantID returns the caller's stable participant identity,
// minting and setting one when the request carries none. The identity
// survives reconnects so a rejoining participant keeps their roster entry.
func EnsureParticipantID(w http.ResponseWriter, r *http.Request) string {
	if id := GetParticipantIDFromRequest(r); id != "" {
		return id
	}
	newID := uuid.New().String()
	SetPersistentParticipantIDCookie(newID, w)
	return newID
}

func GetParticipantIDFromRequest(r *http.Request) string {
	// First try header (for API clients)
	if token := r.Header.Get("X-Participant-Token"); token != "" {
		return token
	}

	// Fall back to cookie (for WebSocket)
	return getParticipantIDFromCookie(r)
}

func getParticipantIDFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieNameParticipantID)
	if err != nil {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func SetPersistentParticipantIDCookie(participantID string, w http.ResponseWriter) {
	expires := time.Now().Add(30 * 24 * time.Hour)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieNameParticipantID,
		Value:    base64.StdEncoding.EncodeToString([]byte(participantID)),
		Path:     "/",
		HttpOnly: true,
		Expires:  expires,
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
	})
}
