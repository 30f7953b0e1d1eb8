package jobs

import (
	"log"
	"time"

	"github.com/anjiri1684/tutor_settlement/services"
)

// ProcessDuePayoutRetries picks up payout retry records whose window has
// elapsed and re-attempts them. Attempt accounting and exhaustion are
// handled by the payout service; this job only decides when.
func ProcessDuePayoutRetries(payouts *services.PayoutService) {
	log.Println("Running job: ProcessDuePayoutRetries...")

	due, err := payouts.DueRetries(time.Now())
	if err != nil {
		log.Printf("Error loading due payout retries: %v", err)
		return
	}

	if len(due) == 0 {
		log.Println("No payout retries due.")
		return
	}

	for i := range due {
		retry := due[i]
		if err := payouts.RunRetry(&retry); err != nil {
			log.Printf("🔥 Payout retry %s failed: %v", retry.ID, err)
		}
	}

	log.Printf("Processed %d due payout retry record(s).", len(due))
}
