package utils

// Server-side messages for the few strings the backend returns in error
// bodies. The frontend owns everything else.

var translations = map[string]map[string]string{
	"fr": {
		"health.ok":             "ok",
		"email.required":        "Adresse e-mail requise",
		"email.invalid":         "Adresse e-mail invalide",
		"session.unauthorized":  "Session Career Quest invalide ou expirée",
		"progress.conflict":     "Conflit de progression",
		"phase.not_found":       "Phase inconnue",
		"phase.prerequisite":    "L'étape précédente n'est pas terminée",
		"deal.not_found":        "Affaire introuvable",
		"login.invalid":         "Identifiants invalides",
		"diagnostic.not_found":  "Aucun diagnostic trouvé",
		"request.invalid_json":  "Corps JSON invalide",
		"request.method":        "Méthode non autorisée",
		"server.internal_error": "Erreur interne du serveur",
	},
	"en": {
		"health.ok":             "ok",
		"email.required":        "Email address required",
		"email.invalid":         "Invalid email address",
		"session.unauthorized":  "Career Quest session invalid or expired",
		"progress.conflict":     "Progress conflict",
		"phase.not_found":       "Unknown phase",
		"phase.prerequisite":    "The previous step is not complete",
		"deal.not_found":        "Deal not found",
		"login.invalid":         "Invalid credentials",
		"diagnostic.not_found":  "No diagnostic found",
		"request.invalid_json":  "Invalid JSON body",
		"request.method":        "Method not allowed",
		"server.internal_error": "Internal server error",
	},
}

// T returns the translated string for key in locale; falls back to French.
func T(locale, key string) string {
	if m, ok := translations[locale]; ok {
		if v, ok := m[key]; ok {
			return v
		}
	}
	if v, ok := translations["fr"][key]; ok {
		return v
	}
	return key
}
