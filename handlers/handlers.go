package handlers

import (
	"github.com/anjiri1684/tutor_settlement/services"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

var (
	settlements *services.SettlementService
	payouts     *services.PayoutService
	ledger      *services.LedgerService
	db          *gorm.DB
)

// Init wires the handler package to its services. Called once from main;
// tests call it with their own database and stub collaborators.
func Init(conn *gorm.DB, settlementSvc *services.SettlementService, payoutSvc *services.PayoutService, ledgerSvc *services.LedgerService) {
	db = conn
	settlements = settlementSvc
	payouts = payoutSvc
	ledger = ledgerSvc
}
