// Package eldercode generates and checks elder codes, the short shared
// secret a family member types to request a link to an elder.
//
// Format: one letter, four digits, a hyphen, four letters/digits
// (e.g. E1234-ABCD). Codes are drawn from crypto/rand; uniqueness is the
// caller's job (see linking.Service.GenerateElderCode).
package eldercode

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Prefix is the leading letter of every generated code.
const Prefix = 'E'

const suffixChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var codeRE = regexp.MustCompile(`^[A-Z][0-9]{4}-[A-Z0-9]{4}$`)

// Generate returns a new random code. It does not check uniqueness.
func Generate() (string, error) {
	// 1000..9999
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(10)
	b.WriteByte(Prefix)
	b.WriteString(big.NewInt(0).Add(n, big.NewInt(1000)).String())
	b.WriteByte('-')
	for i := 0; i < 4; i++ {
		c, err := randomChar(suffixChars)
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

func randomChar(chars string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
	if err != nil {
		return 0, err
	}
	return chars[n.Int64()], nil
}

// Valid reports whether code is in canonical form. Callers should
// Normalize user input first.
func Valid(code string) bool {
	return codeRE.MatchString(code)
}

// Normalize trims and upper-cases a typed code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// QRPNG renders code as a PNG QR image, size pixels square.
func QRPNG(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}
