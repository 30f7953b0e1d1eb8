package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateMeetingLink produces the video session link for a booking. The
// meeting id is random but the password part is derived from the booking
// id, so links stay recognizable per booking.
func GenerateMeetingLink(bookingID uuid.UUID) string {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))
	meetingID := 100000000 + seededRand.Intn(900000000)
	pwd := strings.ReplaceAll(bookingID.String(), "-", "")[:8]
	return fmt.Sprintf("https://zoom.us/j/%d?pwd=%s", meetingID, pwd)
}
