package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

const (
	ChainEVM     = "evm"
	ChainBitcoin = "bitcoin"
	ChainOther   = "other"
)

// MaxLength bounds every accepted address, whatever its format
const MaxLength = 130

var (
	ErrEmpty         = errors.New("wallet address is empty")
	ErrTooLong       = fmt.Errorf("wallet address exceeds %d characters", MaxLength)
	ErrBadChecksum   = errors.New("wallet address has an invalid EIP-55 checksum")
	ErrInvalidFormat = errors.New("wallet address contains invalid characters")
)

var (
	hexAddressRegex = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
	validate        = validator.New()
)

// Address is a wallet address in the canonical form used as the store key
type Address struct {
	Canonical string
	Chain     string
}

// Normalizer turns client supplied strings into canonical addresses.
//
// Hex addresses are case-insensitive: 40-digit EVM addresses become their EIP-55
// checksum form and any other 0x-prefixed hex string is lower-cased. Bitcoin addresses
// are re-encoded for the configured network (bech32 lower-cased, base58 verbatim).
// Everything else must be alphanumeric and keeps its case.
type Normalizer struct {
	bitcoinParams *chaincfg.Params
}

func NewNormalizer(bitcoinParams *chaincfg.Params) *Normalizer {
	if bitcoinParams == nil {
		bitcoinParams = &chaincfg.MainNetParams
	}
	return &Normalizer{bitcoinParams: bitcoinParams}
}

// Normalize validates raw and returns its canonical form
func (n *Normalizer) Normalize(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Address{}, ErrEmpty
	}
	if len(trimmed) > MaxLength {
		return Address{}, ErrTooLong
	}

	// The base58 decoder indexes a byte table by rune
	if err := validate.Var(trimmed, "printascii"); err != nil {
		return Address{}, ErrInvalidFormat
	}

	if hexAddressRegex.MatchString(trimmed) {
		return normalizeHex(trimmed)
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "0x") {
		return Address{}, ErrInvalidFormat
	}

	if canonical, ok := n.normalizeBitcoin(trimmed); ok {
		return Address{Canonical: canonical, Chain: ChainBitcoin}, nil
	}

	if err := validate.Var(trimmed, "required,alphanum"); err != nil {
		return Address{}, ErrInvalidFormat
	}

	return Address{Canonical: trimmed, Chain: ChainOther}, nil
}

func normalizeHex(value string) (Address, error) {
	digits := value[2:]

	if !common.IsHexAddress(value) {
		return Address{Canonical: "0x" + strings.ToLower(digits), Chain: ChainOther}, nil
	}

	checksummed := common.HexToAddress(value).Hex()

	// Single-case input carries no checksum; mixed case must match EIP-55 exactly
	if isMixedCase(digits) && "0x"+digits != checksummed {
		return Address{}, ErrBadChecksum
	}

	return Address{Canonical: checksummed, Chain: ChainEVM}, nil
}

func (n *Normalizer) normalizeBitcoin(value string) (string, bool) {
	decoded, err := btcutil.DecodeAddress(value, n.bitcoinParams)
	if err != nil {
		return "", false
	}

	// Raw public keys decode too, but they are not addresses a wallet connects with
	if _, isPubKey := decoded.(*btcutil.AddressPubKey); isPubKey {
		return "", false
	}

	if !decoded.IsForNet(n.bitcoinParams) {
		return "", false
	}

	return decoded.EncodeAddress(), true
}

func isMixedCase(digits string) bool {
	return strings.ToLower(digits) != digits && strings.ToUpper(digits) != digits
}

// BitcoinParams maps a BITCOIN_NETWORK name to its chain parameters
func BitcoinParams(network string) (*chaincfg.Params, error) {
	switch strings.ToLower(network) {
	case "", "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unsupported bitcoin network %q", network)
	}
}
