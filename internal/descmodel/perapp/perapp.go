// Package perapp implements the per-app filtering rules of spec §4.1.3: for
// a request appId and a candidate's (dbtype, owner), decide whether the
// candidate is visible, and implements splitKeysIntoGlobalOrPerApp
// (spec §4.1.7).
package perapp

import "settingsvc/internal/define"

// ExceptionAllower answers whether appID is on the exception allow-list for
// key (backed by pkg/exceptionlist in production).
type ExceptionAllower interface {
	Allows(key, appID string) bool
}

// Visible implements the §4.1.3 table: dbtype D, candidate owner A, request
// appId (empty string means the global request).
func Visible(key, dbType, owner, requestAppID string, exceptions ExceptionAllower) bool {
	isGlobalRequest := requestAppID == define.GlobalAppID
	isGlobalOwner := owner == define.GlobalAppID

	switch dbType {
	case define.DBTypeGlobal:
		return isGlobalOwner
	case define.DBTypeMixed:
		if isGlobalRequest {
			return isGlobalOwner
		}
		return owner == requestAppID || isGlobalOwner
	case define.DBTypeException:
		if isGlobalRequest {
			return isGlobalOwner
		}
		if exceptions != nil && exceptions.Allows(key, requestAppID) {
			return owner == requestAppID
		}
		return isGlobalOwner
	case define.DBTypePerApp:
		if isGlobalRequest {
			return isGlobalOwner
		}
		return isGlobalOwner || owner == requestAppID
	default:
		return isGlobalOwner
	}
}

// DBTypeOf resolves a key's dbtype (used by Split below); production wiring
// passes descmodel.Model.DBTypeOf.
type DBTypeOf func(key string) string

// Split partitions keys into the global-scope set and the per-app-scope set
// for a per-app request appId, per spec §4.1.7 splitKeysIntoGlobalOrPerApp:
// G keys are always global-scope; P/M/E keys are per-app-scope when the
// request itself is per-app. A global request (appID == "") puts every key
// in the global set. The two returned sets are a total partition of keys.
func Split(keys []string, appID string, dbTypeOf DBTypeOf) (globalKeys, perAppKeys []string) {
	for _, k := range keys {
		dbType := dbTypeOf(k)
		if appID == define.GlobalAppID || dbType == define.DBTypeGlobal {
			globalKeys = append(globalKeys, k)
			continue
		}
		perAppKeys = append(perAppKeys, k)
	}
	return globalKeys, perAppKeys
}
