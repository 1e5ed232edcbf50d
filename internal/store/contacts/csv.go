package contacts

import (
	"encoding/csv"
	"io"
	"strings"
)

// ParseImport reads an uploaded delimited-text contact file.
//
// Column handling is forgiving, matching what real exports look like:
//   - a "phone" column is used when present (case-insensitive); otherwise
//     the first all-digit value in each row is taken as the phone
//   - a "name" column is matched case-insensitively; a missing or empty
//     name (or the literal NULL marker) yields an unnamed contact
//
// Rows without a phone are skipped. The result is NOT deduplicated; Merge
// handles that.
func ParseImport(r io.Reader) ([]Contact, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	phoneCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "phone":
			phoneCol = i
		case "name":
			nameCol = i
		}
	}

	var out []Contact

	// Headerless file: the first row is data.
	if phoneCol < 0 && nameCol < 0 {
		if c, ok := contactFromRow(header, -1, -1); ok {
			out = append(out, c)
		}
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if c, ok := contactFromRow(rec, phoneCol, nameCol); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func contactFromRow(rec []string, phoneCol, nameCol int) (Contact, bool) {
	var phone string
	if phoneCol >= 0 && phoneCol < len(rec) {
		phone = strings.TrimSpace(rec[phoneCol])
	} else {
		for _, v := range rec {
			v = strings.TrimSpace(v)
			if v != "" && allDigits(v) {
				phone = v
				break
			}
		}
	}
	if phone == "" {
		return Contact{}, false
	}

	var name string
	if nameCol >= 0 && nameCol < len(rec) {
		name = strings.TrimSpace(rec[nameCol])
		if name == NameSentinel {
			name = ""
		}
	}
	return Contact{Phone: phone, Name: name}, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
