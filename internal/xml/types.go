package xml

// Local names of the elements this package reads or writes
const (
	TagPropfind           = "propfind"
	TagProp               = "prop"
	TagMultistatus        = "multistatus"
	TagResponse           = "response"
	TagHref               = "href"
	TagPropstat           = "propstat"
	TagStatus             = "status"
	TagResourcetype       = "resourcetype"
	TagCalendar           = "calendar"
	TagAddressbook        = "addressbook"
	TagDisplayName        = "displayname"
	TagGetETag            = "getetag"
	TagGetCTag            = "getctag"
	TagSyncToken          = "sync-token"
	TagCalendarData       = "calendar-data"
	TagAddressData        = "address-data"
	TagPrivilegeSet       = "current-user-privilege-set"
	TagPrivilege          = "privilege"
	TagWrite              = "write"
	TagWriteContent       = "write-content"
	TagAll                = "all"
	TagPrincipal          = "current-user-principal"
	TagCalendarHomeSet    = "calendar-home-set"
	TagAddressbookHomeSet = "addressbook-home-set"
	TagCalendarColor      = "calendar-color"
	TagSupportedCompSet   = "supported-calendar-component-set"
)

// propNamespaces resolves the property names accepted by BuildPropfind to their namespace.
var propNamespaces = map[string]string{
	TagResourcetype:       DAV,
	TagDisplayName:        DAV,
	TagGetETag:            DAV,
	TagSyncToken:          DAV,
	TagPrivilegeSet:       DAV,
	TagPrincipal:          DAV,
	TagGetCTag:            CalendarServer,
	TagCalendarColor:      AppleICal,
	TagCalendarHomeSet:    CalDAV,
	TagSupportedCompSet:   CalDAV,
	TagAddressbookHomeSet: CardDAV,
}
