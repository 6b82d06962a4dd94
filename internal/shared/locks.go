package shared

import "fmt"

// TransitionLockKey builds redis keys guarding the period transition of a tenant.
func TransitionLockKey(tenantID string) string {
	return fmt.Sprintf("invix:tenant:%s:transition:lock", tenantID)
}

// ArchiveLockKey builds redis keys serialising archival of one tenant year.
func ArchiveLockKey(tenantID string, year int) string {
	return fmt.Sprintf("invix:tenant:%s:archive:%d:lock", tenantID, year)
}
