package model

import "time"

// TxKind classifies a ledger entry.
type TxKind string

const (
	KindStakeDebit     TxKind = "stake-debit"
	KindStakeRefund    TxKind = "stake-refund"
	KindSuccessCredit  TxKind = "success-credit"
	KindPenaltyLoss    TxKind = "penalty-loss"
	KindRecoveryCredit TxKind = "recovery-credit"
	KindAllyCredit     TxKind = "ally-credit"
	KindGrant          TxKind = "grant"
)

// Transaction is one append-only ledger entry. Amount is the signed balance
// delta; Forfeited is only set on penalty-loss entries, whose Amount is 0
// because the tokens already left the balance at escrow time.
type Transaction struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	Amount            int64     `json:"amount"`
	Kind              TxKind    `json:"kind"`
	Forfeited         int64     `json:"forfeited,omitempty"`
	RelatedContractID string    `json:"related_contract_id,omitempty"`
	RelatedMissionID  string    `json:"related_mission_id,omitempty"`
	Note              string    `json:"note,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Ref links a ledger entry to the record that caused it.
type Ref struct {
	ContractID string
	MissionID  string
	Note       string
}
