package mirror

import "time"

// TTL for mirrored documents. Added to time.Now() when storing to
// calculate expires_at. Model records change only when a synthesis or
// evaluation cycle touches them, so a generous window is fine.
const TTLModelDocument = 7 * 24 * time.Hour
