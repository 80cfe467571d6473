package data

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gitlab.com/distributed_lab/logan/v3"
	"gitlab.com/distributed_lab/logan/v3/errors"
)

const SignatureLength = crypto.SignatureLength

// Signature is a 65 byte r||s||v ECDSA signature with v normalised to 27/28.
type Signature [SignatureLength]byte

func ParseSignature(raw string) (Signature, error) {
	b, err := hexutil.Decode(raw)
	if err != nil {
		return Signature{}, errors.Wrap(err, "signature is not a hex string")
	}
	return SignatureFromBytes(b)
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, errors.From(errors.New("invalid signature length"), logan.F{
			"length":   len(b),
			"expected": SignatureLength,
		})
	}
	copy(sig[:], b)

	switch v := sig[64]; v {
	case 0, 1:
		sig[64] = v + 27
	case 27, 28:
	default:
		return Signature{}, errors.From(errors.New("invalid signature recovery id"), logan.F{"v": v})
	}
	return sig, nil
}

// Compact splits the signature into the EIP-2098 (r, vs) form where the top bit
// of vs carries the recovery id.
func (s Signature) Compact() (r, vs [32]byte) {
	copy(r[:], s[:32])
	copy(vs[:], s[32:64])
	if s[64] == 28 {
		vs[0] |= 0x80
	}
	return r, vs
}

// SignatureFromCompact rebuilds the 65 byte signature from its (r, vs) form.
func SignatureFromCompact(r, vs [32]byte) Signature {
	var sig Signature
	copy(sig[:32], r[:])
	copy(sig[32:64], vs[:])
	sig[32] &= 0x7f
	sig[64] = 27 + (vs[0] >> 7)
	return sig
}

func (s Signature) Bytes() []byte {
	b := make([]byte, SignatureLength)
	copy(b, s[:])
	return b
}

func (s Signature) Hex() string {
	return hexutil.Encode(s[:])
}

// Recover returns the address that produced the signature over hash.
func (s Signature) Recover(hash common.Hash) (common.Address, error) {
	b := s.Bytes()
	b[64] -= 27
	if !crypto.ValidateSignatureValues(b[64], new(big.Int).SetBytes(b[:32]), new(big.Int).SetBytes(b[32:64]), true) {
		return common.Address{}, errors.New("signature values are out of range")
	}

	pub, err := crypto.SigToPub(hash.Bytes(), b)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover public key")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
