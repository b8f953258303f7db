// Package memo maps transfer comments to account ids.
//
// Depositors put their account id, hex encoded, in the comment of the
// transfer. The encoding is part of the contract with the wallet client
// so the parser is an interface.
package memo

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrEmpty   = errors.New("memo is empty")
	ErrInvalid = errors.New("memo is not a valid account id")
)

// Parser extracts the target account id from a transfer comment.
type Parser interface {
	AccountID(memo string) (int64, error)
}

// HexParser reads the comment as a hexadecimal account id.
type HexParser struct{}

var _ Parser = HexParser{}

func (HexParser) AccountID(memo string) (int64, error) {
	s := strings.TrimSpace(memo)
	if s == "" {
		return 0, ErrEmpty
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	id, err := strconv.ParseInt(s, 16, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalid
	}
	return id, nil
}

// Encode returns the comment a depositor must attach for accountID.
func Encode(accountID int64) string {
	return strconv.FormatInt(accountID, 16)
}

// DepositLink builds a ton:// transfer link that pre-fills the comment.
func DepositLink(address string, accountID int64) string {
	return "ton://transfer/" + address + "?text=" + url.QueryEscape(Encode(accountID))
}
