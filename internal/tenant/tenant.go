// Package tenant allocates owner and branch identifiers and derives branch
// display names.
package tenant

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tirepos/backend/internal/domain"
)

var regionNames = map[string]string{
	"SEL": "Seoul",
	"BSN": "Busan",
	"ICN": "Incheon",
	"DGU": "Daegu",
	"DJN": "Daejeon",
	"GWJ": "Gwangju",
	"ULS": "Ulsan",
	"GGI": "Gyeonggi",
}

// NextOwnerID returns the next tenant id for the year of now: a two digit
// year followed by a zero padded four digit sequence. Only six digit
// numeric ids with the same prefix take part in the scan.
func NextOwnerID(existingIDs []string, now time.Time) string {
	prefix := fmt.Sprintf("%02d", now.Year()%100)
	maxSeq := 0
	for _, id := range existingIDs {
		if len(id) != 6 || !strings.HasPrefix(id, prefix) {
			continue
		}
		seq, err := strconv.Atoi(id[2:])
		if err != nil || seq < 0 {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return fmt.Sprintf("%s%04d", prefix, maxSeq+1)
}

func BranchID(ownerID string, n int) string {
	return fmt.Sprintf("%s-%02d", ownerID, n)
}

// NextBranchID picks the first unused branch number after the highest one
// the owner already has.
func NextBranchID(ownerID string, stores []domain.StoreAccount) string {
	prefix := ownerID + "-"
	maxN := 0
	for _, st := range stores {
		if !strings.HasPrefix(st.ID, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(st.ID, prefix))
		if err != nil {
			continue
		}
		if n > maxN {
			maxN = n
		}
	}
	return BranchID(ownerID, maxN+1)
}

// RegionName maps a region code to its display name. Unknown codes are
// returned as given.
func RegionName(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if name, ok := regionNames[code]; ok {
		return name
	}
	return code
}

func KnownRegion(code string) bool {
	_, ok := regionNames[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

func BranchName(ownerName string, regionCode string) string {
	region := RegionName(regionCode)
	ownerName = strings.TrimSpace(ownerName)
	if region == "" {
		return ownerName
	}
	return ownerName + " " + region
}

// OwnedStores returns the branches that belong to ownerID.
func OwnedStores(ownerID string, stores []domain.StoreAccount) []domain.StoreAccount {
	owned := make([]domain.StoreAccount, 0)
	for _, st := range stores {
		if st.OwnerID == ownerID {
			owned = append(owned, st)
		}
	}
	return owned
}
