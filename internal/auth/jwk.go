package auth

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const minRSAModulusBits = 2048

var errUnsupportedKey = errors.New("unsupported jwk")

// verificationKey pairs a public key with the single algorithm it may verify.
type verificationKey struct {
	algorithm string
	public    crypto.PublicKey
}

type jsonWebKeySet struct {
	Keys []jsonWebKey `json:"keys"`
}

// jsonWebKey holds the RFC 7517 members used for RSA and EC signature keys.
type jsonWebKey struct {
	KeyType   string `json:"kty"`
	KeyID     string `json:"kid"`
	Use       string `json:"use"`
	Algorithm string `json:"alg"`

	N string `json:"n"`
	E string `json:"e"`

	Curve string `json:"crv"`
	X     string `json:"x"`
	Y     string `json:"y"`
}

type ellipticCurve struct {
	algorithm string
	curve     elliptic.Curve
	exchange  ecdh.Curve
}

var ellipticCurves = map[string]ellipticCurve{
	"P-256": {algorithm: jwt.SigningMethodES256.Alg(), curve: elliptic.P256(), exchange: ecdh.P256()},
	"P-384": {algorithm: jwt.SigningMethodES384.Alg(), curve: elliptic.P384(), exchange: ecdh.P384()},
}

func (k jsonWebKey) verificationKey() (verificationKey, error) {
	if k.KeyID == "" {
		return verificationKey{}, fmt.Errorf("%w: missing kid", errUnsupportedKey)
	}
	if k.Use != "" && k.Use != "sig" {
		return verificationKey{}, fmt.Errorf("%w: use %q", errUnsupportedKey, k.Use)
	}

	var (
		key verificationKey
		err error
	)
	switch k.KeyType {
	case "RSA":
		key, err = k.rsaKey()
	case "EC":
		key, err = k.ecKey()
	default:
		return verificationKey{}, fmt.Errorf("%w: kty %q", errUnsupportedKey, k.KeyType)
	}
	if err != nil {
		return verificationKey{}, err
	}
	if k.Algorithm != "" && k.Algorithm != key.algorithm {
		return verificationKey{}, fmt.Errorf("%w: alg %q on %s key", errUnsupportedKey, k.Algorithm, k.KeyType)
	}
	return key, nil
}

func (k jsonWebKey) rsaKey() (verificationKey, error) {
	modulusBytes, err := decodeKeyMember("n", k.N)
	if err != nil {
		return verificationKey{}, err
	}
	exponentBytes, err := decodeKeyMember("e", k.E)
	if err != nil {
		return verificationKey{}, err
	}

	modulus := new(big.Int).SetBytes(modulusBytes)
	if modulus.BitLen() < minRSAModulusBits {
		return verificationKey{}, fmt.Errorf("%w: rsa modulus of %d bits", errUnsupportedKey, modulus.BitLen())
	}
	exponent := new(big.Int).SetBytes(exponentBytes)
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > math.MaxInt32 || exponent.Bit(0) == 0 {
		return verificationKey{}, fmt.Errorf("%w: rsa exponent %s", errUnsupportedKey, exponent)
	}

	return verificationKey{
		algorithm: jwt.SigningMethodRS256.Alg(),
		public:    &rsa.PublicKey{N: modulus, E: int(exponent.Int64())},
	}, nil
}

func (k jsonWebKey) ecKey() (verificationKey, error) {
	params, ok := ellipticCurves[k.Curve]
	if !ok {
		return verificationKey{}, fmt.Errorf("%w: crv %q", errUnsupportedKey, k.Curve)
	}
	x, err := decodeKeyMember("x", k.X)
	if err != nil {
		return verificationKey{}, err
	}
	y, err := decodeKeyMember("y", k.Y)
	if err != nil {
		return verificationKey{}, err
	}

	coordinateSize := (params.curve.Params().BitSize + 7) / 8
	if len(x) != coordinateSize || len(y) != coordinateSize {
		return verificationKey{}, fmt.Errorf("%w: %s coordinates must be %d bytes", errUnsupportedKey, k.Curve, coordinateSize)
	}

	// ecdh validates that the uncompressed point lies on the curve.
	point := make([]byte, 0, 1+2*coordinateSize)
	point = append(point, 0x04)
	point = append(point, x...)
	point = append(point, y...)
	if _, err := params.exchange.NewPublicKey(point); err != nil {
		return verificationKey{}, fmt.Errorf("%w: %s point: %v", errUnsupportedKey, k.Curve, err)
	}

	return verificationKey{
		algorithm: params.algorithm,
		public: &ecdsa.PublicKey{
			Curve: params.curve,
			X:     new(big.Int).SetBytes(x),
			Y:     new(big.Int).SetBytes(y),
		},
	}, nil
}

// decodeKeyMember decodes a base64url member, tolerating stray padding.
func decodeKeyMember(name, value string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(value, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: member %q: %v", errUnsupportedKey, name, err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("%w: member %q is empty", errUnsupportedKey, name)
	}
	return decoded, nil
}
