package extract

import (
	"regexp"
	"strings"
)

const dniLetters = "TRWAGMYFPDXBNJZSQVHLCKE"

var (
	dniPattern = regexp.MustCompile(`^(\d{8})([A-Z])$`)
	niePattern = regexp.MustCompile(`^([XYZ])(\d{7})([A-Z])$`)
	cifPattern = regexp.MustCompile(`^([ABCDEFGHJNPQRSUVW])(\d{7})([0-9A-J])$`)
)

// ValidTaxID checks the control character of a Spanish DNI, NIE or CIF
func ValidTaxID(id string) bool {
	id = strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(id))

	if m := dniPattern.FindStringSubmatch(id); m != nil {
		return dniLetter(m[1]) == m[2][0]
	}
	if m := niePattern.FindStringSubmatch(id); m != nil {
		prefix := string(rune('0' + strings.Index("XYZ", m[1])))
		return dniLetter(prefix+m[2]) == m[3][0]
	}
	if m := cifPattern.FindStringSubmatch(id); m != nil {
		return cifControlOK(m[2], m[3][0])
	}
	return false
}

func dniLetter(digits string) byte {
	n := 0
	for _, r := range digits {
		n = (n*10 + int(r-'0')) % 23
	}
	return dniLetters[n]
}

func cifControlOK(digits string, control byte) bool {
	sum := 0
	for i, r := range digits {
		d := int(r - '0')
		if i%2 == 0 {
			// odd positions are doubled and their digits added
			d *= 2
			d = d/10 + d%10
		}
		sum += d
	}
	c := (10 - sum%10) % 10
	return control == byte('0'+c) || control == "JABCDEFGHI"[c]
}
