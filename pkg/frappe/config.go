package frappe

// Method paths for the Frappe site.
// This file is the SINGLE SOURCE OF TRUTH for all remote method names.

const (
	// ImportModule is the dotted module that hosts the import endpoints.
	ImportModule = "cipl_app.cipl_app.scripts.excel_import"

	// MethodValidateImportPreview runs the dry-run mapping preview.
	MethodValidateImportPreview = ImportModule + ".validate_import_preview"

	// MethodStartExcelImport enqueues the background import job.
	MethodStartExcelImport = ImportModule + ".start_excel_import"

	// MethodSearchDoctypes lists importable doctypes for the link picker.
	MethodSearchDoctypes = ImportModule + ".get_cipl_app_doctypes"

	// MethodUploadFile stores an attachment and returns its file_url.
	MethodUploadFile = "upload_file"

	// MethodGetDoctype returns doctype metadata including fields.
	MethodGetDoctype = "frappe.desk.form.load.getdoctype"

	// MethodGetCount counts records of a doctype.
	MethodGetCount = "frappe.client.get_count"

	// MethodLoggedUser returns the session user.
	MethodLoggedUser = "frappe.auth.get_logged_user"

	// MethodPing is the unauthenticated liveness endpoint.
	MethodPing = "ping"

	// ProgressEvent is the realtime event the import job publishes.
	ProgressEvent = "excel_import_progress"
)

// MethodURL returns the URL of a whitelisted method on the site.
func MethodURL(siteURL, method string) string {
	return trimSlash(siteURL) + "/api/method/" + method
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
