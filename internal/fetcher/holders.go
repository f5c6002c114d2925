package fetcher

import "holders-backend/internal/models"

// QualifyingOwners returns the distinct owners holding a strictly positive
// amount, in first-seen order.
func QualifyingOwners(records []models.HolderRecord) []string {
	seen := make(map[string]struct{}, len(records))
	owners := make([]string, 0, len(records))
	for _, r := range records {
		if !r.Amount.IsPositive() {
			continue
		}
		if _, ok := seen[r.Owner]; ok {
			continue
		}
		seen[r.Owner] = struct{}{}
		owners = append(owners, r.Owner)
	}
	return owners
}

// CountHolders returns the number of distinct owners with a positive balance.
// An owner with several qualifying accounts counts once.
func CountHolders(records []models.HolderRecord) int {
	return len(QualifyingOwners(records))
}
