package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Polygon mainnet CTF exchange, the verifying contract for CLOB orders.
var DefaultExchange = common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")

const clobAuthMessage = "This message attests that I control the given wallet"

var (
	domainTypeHash = ethcrypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)"))
	contractDomainTypeHash = ethcrypto.Keccak256([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	clobAuthTypeHash = ethcrypto.Keccak256([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)"))
	orderTypeHash = ethcrypto.Keccak256([]byte(
		"Order(uint256 salt,address maker,address signer,address taker,uint256 tokenId,uint256 makerAmount,uint256 takerAmount,uint256 expiration,uint256 nonce,uint256 feeRateBps,uint8 side,uint8 signatureType)"))
)

// Order sides and signature types of a CLOB order.
const (
	SideBuy  = 0
	SideSell = 1

	SignatureEOA = 0
)

// Order is the signed struct of a CLOB limit order. Integers are decimal
// strings.
type Order struct {
	Salt          string `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          int    `json:"side"`
	SignatureType int    `json:"signatureType"`
}

// Signer signs CLOB auth messages and orders with a secp256k1 wallet key.
type Signer struct {
	key        *ecdsa.PrivateKey
	address    common.Address
	authDomain []byte
	exDomain   []byte
}

// NewSigner creates a Signer for chainID and the given exchange contract.
func NewSigner(keyHex string, chainID int64, exchange common.Address) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid wallet key: %w", err)
	}
	chain := word(big.NewInt(chainID))
	return &Signer{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		authDomain: ethcrypto.Keccak256(domainTypeHash,
			ethcrypto.Keccak256([]byte("ClobAuthDomain")), ethcrypto.Keccak256([]byte("1")), chain),
		exDomain: ethcrypto.Keccak256(contractDomainTypeHash,
			ethcrypto.Keccak256([]byte("Polymarket CTF Exchange")), ethcrypto.Keccak256([]byte("1")), chain,
			common.LeftPadBytes(exchange.Bytes(), 32)),
	}, nil
}

// Address is the wallet address.
func (s *Signer) Address() common.Address { return s.address }

// SignAuth signs the L1 ClobAuth message used to derive API credentials.
func (s *Signer) SignAuth(timestamp string, nonce int64) (string, error) {
	h := ethcrypto.Keccak256(
		clobAuthTypeHash,
		common.LeftPadBytes(s.address.Bytes(), 32),
		ethcrypto.Keccak256([]byte(timestamp)),
		word(big.NewInt(nonce)),
		ethcrypto.Keccak256([]byte(clobAuthMessage)),
	)
	return s.sign(s.authDomain, h)
}

// SignOrder signs o under the exchange domain.
func (s *Signer) SignOrder(o Order) (string, error) {
	h, err := o.structHash()
	if err != nil {
		return "", err
	}
	return s.sign(s.exDomain, h)
}

func (s *Signer) sign(domainSep, structHash []byte) (string, error) {
	digest := ethcrypto.Keccak256([]byte{0x19, 0x01}, domainSep, structHash)
	sig, err := ethcrypto.Sign(digest, s.key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

func (o Order) structHash() ([]byte, error) {
	ints := make([][]byte, 0, 7)
	for _, f := range []struct{ name, v string }{
		{"salt", o.Salt}, {"tokenId", o.TokenID}, {"makerAmount", o.MakerAmount},
		{"takerAmount", o.TakerAmount}, {"expiration", o.Expiration}, {"nonce", o.Nonce},
		{"feeRateBps", o.FeeRateBps},
	} {
		n, ok := new(big.Int).SetString(f.v, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("crypto: invalid order %s %q", f.name, f.v)
		}
		ints = append(ints, word(n))
	}
	addr := func(a string) []byte { return common.LeftPadBytes(common.HexToAddress(a).Bytes(), 32) }
	return ethcrypto.Keccak256(
		orderTypeHash,
		ints[0], addr(o.Maker), addr(o.Signer), addr(o.Taker),
		ints[1], ints[2], ints[3], ints[4], ints[5], ints[6],
		word(big.NewInt(int64(o.Side))),
		word(big.NewInt(int64(o.SignatureType))),
	), nil
}

// word left-pads n to a 32-byte ABI word.
func word(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}
