package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces EIP-712 order signatures with a pre-computed domain
// separator, avoiding the reflection-heavy generic typed-data path on the
// hot submission loop.
type Signer struct {
	key             *ecdsa.PrivateKey
	address         common.Address
	chainID         *big.Int
	domainSeparator common.Hash
}

func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}

	// domainSeparator = keccak256(abi.encode(typeHash, keccak256(name),
	// keccak256(version), chainId, verifyingContract))
	data := make([]byte, 32*5)
	copy(data[0:32], domainTypeHash.Bytes())
	copy(data[32:64], crypto.Keccak256Hash([]byte(domainName)).Bytes())
	copy(data[64:96], crypto.Keccak256Hash([]byte(domainVersion)).Bytes())
	copy(data[96:128], math.U256Bytes(big.NewInt(chainID)))
	copy(data[128+12:160], common.HexToAddress(ExchangeContractAddress).Bytes())

	return &Signer{
		key:             key,
		address:         crypto.PubkeyToAddress(*publicKey),
		chainID:         big.NewInt(chainID),
		domainSeparator: crypto.Keccak256Hash(data),
	}, nil
}

// SignOrder hashes the order per EIP-712 and returns the 65-byte
// signature as a 0x-prefixed hex string, with v normalized to 27/28.
func (s *Signer) SignOrder(order *Order) (string, error) {
	structHash := hashOrder(order)
	digest := crypto.Keccak256([]byte{0x19, 0x01}, s.domainSeparator.Bytes(), structHash)

	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", err
	}
	if signature[64] < 27 {
		signature[64] += 27
	}
	return "0x" + common.Bytes2Hex(signature), nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// hashOrder computes hashStruct(order): the type hash followed by the 12
// fields, each padded to a 32-byte word.
func hashOrder(order *Order) []byte {
	data := make([]byte, 32*13)

	copy(data[0:32], orderTypeHash.Bytes())
	putU256(data[32:64], order.Salt)
	copy(data[64+12:96], order.Maker.Bytes())
	copy(data[96+12:128], order.Signer.Bytes())
	copy(data[128+12:160], order.Taker.Bytes())
	putU256(data[160:192], order.TokenID)
	putU256(data[192:224], order.MakerAmount)
	putU256(data[224:256], order.TakerAmount)
	putU256(data[256:288], order.Expiration)
	putU256(data[288:320], order.Nonce)
	putU256(data[320:352], order.FeeRateBps)
	putU256(data[352:384], big.NewInt(int64(order.Side)))
	putU256(data[384:416], big.NewInt(int64(order.SignatureType)))

	return crypto.Keccak256(data)
}

func putU256(dst []byte, v *big.Int) {
	if v == nil {
		return
	}
	copy(dst, math.U256Bytes(v))
}
