package infrastructure

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

// Donor details are stored as JSON written by several capture paths over time,
// each with its own field names. These are the names seen in stored rows, most
// preferred first.
var (
	donorNameKeys    = []string{"name", "donorName", "donor_name", "fullName", "full_name"}
	donorPhoneKeys   = []string{"phone", "phoneNumber", "phone_number", "mobile", "contact"}
	donorAddressKeys = []string{"address", "donorAddress", "donor_address", "location"}
)

// decodeDonor turns a stored donor reference and details payload into a single
// DonorInfo. A registered user's profile name wins over a free-text one.
func decodeDonor(donorID, userName sql.NullString, raw []byte) (domain.DonorInfo, error) {
	var info domain.DonorInfo
	if donorID.Valid && donorID.String != "" {
		id := donorID.String
		info.UserID = &id
	}

	if len(raw) > 0 && string(raw) != "null" {
		var payload map[string]interface{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return info, fmt.Errorf("invalid donor details: %w", err)
		}
		// Some rows nest the triple under a "donor" or "offlineDonor" key.
		for _, key := range []string{"donor", "offlineDonor", "offline_donor"} {
			if nested, ok := payload[key].(map[string]interface{}); ok {
				payload = nested
				break
			}
		}
		info.Name = firstString(payload, donorNameKeys)
		info.Phone = firstString(payload, donorPhoneKeys)
		info.Address = firstString(payload, donorAddressKeys)
	}

	if userName.Valid && strings.TrimSpace(userName.String) != "" {
		info.Name = userName.String
	}
	return info, nil
}

// encodeDonor writes the canonical shape. The user reference lives in its own column.
func encodeDonor(info domain.DonorInfo) ([]byte, error) {
	payload := map[string]string{}
	if info.Name != "" {
		payload["name"] = info.Name
	}
	if info.Phone != "" {
		payload["phone"] = info.Phone
	}
	if info.Address != "" {
		payload["address"] = info.Address
	}
	return json.Marshal(payload)
}

func firstString(payload map[string]interface{}, keys []string) string {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
