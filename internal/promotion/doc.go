// Package promotion turns high-confidence patterns into generated artifacts
// (skill, command, and agent documents) and keeps an append-only ledger of
// every promotion.
package promotion
