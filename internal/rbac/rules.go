package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"attempt:start",
		"attempt:resume",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"attempt:logs-write",
		"notify:subscribe",
	},
	"teacher": {
		"quiz:view",
		"quiz:create",
		"attempt:view-all",
		"attempt:logs-view",
	},
	"admin": {
		"*", // everything
	},
}
