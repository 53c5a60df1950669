package manifest

import _ "modernc.org/sqlite"

const driverName = "sqlite"
