package dashboard

import "github.com/nerrad567/posfleet-core/internal/fleet"

// Invalidations lists the collections each event type makes stale.
// initial_status is absent: it invalidates the whole cache (see Cache.Apply).
//
// The summary is included because its device and alert counts move with
// both events.
var Invalidations = map[fleet.EventType][]string{
	fleet.EventDeviceStatusChange: {CollectionPosDevices, CollectionCustomers, CollectionSummary},
	fleet.EventNewAlert:           {CollectionAlerts, CollectionAlertsUnread, CollectionSummary},
}
