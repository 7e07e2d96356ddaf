package v1

import "strings"

// Room keys are part of the wire contract: clients join and receive events
// against these exact strings.

// TenantRoom is the broadcast audience of all staff/admin of a tenant.
func TenantRoom(tenantID string) string {
	return "tenant:" + tenantID
}

// TenantClientRoom is the broadcast audience of all users scoped to one
// customer of a tenant.
func TenantClientRoom(tenantID, customerID string) string {
	return "tenant-client:" + tenantID + ":" + customerID
}

// RoomInTenant reports whether roomID is one of the tenant's derived
// audience rooms, either the staff room or any customer room of that tenant.
// Explicit chat rooms are never derived and always report false.
func RoomInTenant(roomID, tenantID string) bool {
	if tenantID == "" {
		return false
	}
	return roomID == TenantRoom(tenantID) ||
		strings.HasPrefix(roomID, "tenant-client:"+tenantID+":")
}
