// Package i18n holds the display-language strings of the back office.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	AccessDeniedTitle   = "access_denied.title"
	AccessDeniedUsers   = "access_denied.users"
	AccessDeniedGroups  = "access_denied.groups"
	LoadFailed          = "load.failed"
	Retry               = "load.retry"
	GenericError        = "error.generic"
	InlineUpdateFailed  = "inline.update_failed"
	DenyCreate          = "deny.create"
	DenyImport          = "deny.import"
	DenyExport          = "deny.export"
	DenyDetails         = "deny.details"
	DenyAction          = "deny.action"
	ConfirmRole         = "confirm.role"
	ConfirmManager      = "confirm.manager"
	ConfirmStatus       = "confirm.status"
	ConfirmDelete       = "confirm.delete"
	DeleteFailed        = "delete.failed"
	Deleted             = "delete.done"
	NoManager           = "manager.none"
	NotApplicable       = "manager.not_applicable"
	ManagerUnset        = "manager.unset"
	PermissionsRefresh  = "permissions.refreshed"
	NoDataToExport      = "export.empty"
	AccessRightsSaved   = "access_rights.saved"
	AccessRightsNoop    = "access_rights.unchanged"
	AccessRightsInvalid = "access_rights.invalid"
	UserCreated         = "users.created"
	UserFormInvalid     = "users.form_invalid"
	RoleProtected       = "users.role_protected"
)

var entries = map[string]map[language.Tag]string{
	AccessDeniedTitle:   {language.French: "Accès refusé", language.English: "Access denied"},
	AccessDeniedUsers:   {language.French: "Vous n'avez pas les permissions nécessaires pour voir la liste des utilisateurs.", language.English: "You do not have permission to view the user list."},
	AccessDeniedGroups:  {language.French: "Vous n'avez pas les permissions nécessaires pour voir la liste des groupes.", language.English: "You do not have permission to view the group list."},
	LoadFailed:          {language.French: "Erreur lors du chargement des données.", language.English: "Failed to load data."},
	Retry:               {language.French: "Réessayer", language.English: "Retry"},
	GenericError:        {language.French: "Une erreur est survenue.", language.English: "An error occurred."},
	InlineUpdateFailed:  {language.French: "La mise à jour a échoué.", language.English: "The update failed."},
	DenyCreate:          {language.French: "Vous n'avez pas la permission de créer des utilisateurs.", language.English: "You do not have permission to create users."},
	DenyImport:          {language.French: "Vous n'avez pas la permission d'importer des utilisateurs.", language.English: "You do not have permission to import users."},
	DenyExport:          {language.French: "Vous n'avez pas la permission d'exporter la liste des utilisateurs.", language.English: "You do not have permission to export the user list."},
	DenyDetails:         {language.French: "Vous n'avez pas la permission de voir les détails des utilisateurs.", language.English: "You do not have permission to view user details."},
	DenyAction:          {language.French: "Vous n'avez pas les permissions nécessaires pour cette action", language.English: "You do not have the permissions required for this action"},
	ConfirmRole:         {language.French: "Êtes-vous sûr de vouloir changer le rôle de cet utilisateur en %s ?", language.English: "Change this user's role to %s?"},
	ConfirmManager:      {language.French: "Êtes-vous sûr de vouloir assigner %s comme manager ?", language.English: "Assign %s as manager?"},
	ConfirmStatus:       {language.French: "Êtes-vous sûr de vouloir passer le statut de cet utilisateur à %s ?", language.English: "Change this user's status to %s?"},
	ConfirmDelete:       {language.French: "Êtes-vous sûr de vouloir supprimer l'utilisateur %s ?", language.English: "Delete user %s?"},
	DeleteFailed:        {language.French: "Erreur lors de la suppression.", language.English: "Delete failed."},
	Deleted:             {language.French: "Utilisateur supprimé.", language.English: "User deleted."},
	NoManager:           {language.French: "Pas de manager", language.English: "No manager"},
	NotApplicable:       {language.French: "N/A", language.English: "N/A"},
	ManagerUnset:        {language.French: "Pas défini", language.English: "Not set"},
	PermissionsRefresh:  {language.French: "Permissions mises à jour.", language.English: "Permissions refreshed."},
	NoDataToExport:      {language.French: "Aucune donnée utilisateur à exporter.", language.English: "No user data to export."},
	AccessRightsSaved:   {language.French: "Droits d'accès enregistrés.", language.English: "Access rights saved."},
	AccessRightsNoop:    {language.French: "Aucune modification à enregistrer.", language.English: "Nothing to save."},
	AccessRightsInvalid: {language.French: "Requête de droits d'accès invalide.", language.English: "Invalid access rights request."},
	UserCreated:         {language.French: "Utilisateur créé.", language.English: "User created."},
	UserFormInvalid:     {language.French: "Veuillez corriger les champs du formulaire.", language.English: "Please fix the form fields."},
	RoleProtected:       {language.French: "Ce rôle ne peut pas être attribué ici.", language.English: "This role cannot be assigned here."},
}

// Interface labels used by the templates.
var labels = map[string]map[language.Tag]string{
	"column.firstName":          {language.French: "Prénom", language.English: "First name"},
	"column.lastName":           {language.French: "Nom", language.English: "Last name"},
	"column.email":              {language.French: "Email", language.English: "Email"},
	"column.role":               {language.French: "Rôle", language.English: "Role"},
	"column.manager":            {language.French: "Manager", language.English: "Manager"},
	"column.status":             {language.French: "Statut", language.English: "Status"},
	"action.view":               {language.French: "Voir", language.English: "View"},
	"action.edit":               {language.French: "Modifier", language.English: "Edit"},
	"action.delete":             {language.French: "Supprimer", language.English: "Delete"},
	"action.cancel":             {language.French: "Annuler", language.English: "Cancel"},
	"label.users":               {language.French: "Utilisateurs", language.English: "Users"},
	"label.groups":              {language.French: "Groupes", language.English: "Groups"},
	"label.access_rights":       {language.French: "Droits d'accès", language.English: "Access rights"},
	"label.search":              {language.French: "Rechercher", language.English: "Search"},
	"label.create":              {language.French: "Ajouter un utilisateur", language.English: "Add user"},
	"label.import":              {language.French: "Importer", language.English: "Import"},
	"label.export":              {language.French: "Exporter", language.English: "Export"},
	"label.confirm":             {language.French: "Confirmer", language.English: "Confirm"},
	"label.cancel":              {language.French: "Annuler", language.English: "Cancel"},
	"label.close":               {language.French: "Fermer", language.English: "Close"},
	"label.save":                {language.French: "Sauvegarder", language.English: "Save"},
	"label.previous":            {language.French: "Précédent", language.English: "Previous"},
	"label.next":                {language.French: "Suivant", language.English: "Next"},
	"label.empty":               {language.French: "Aucun utilisateur trouvé.", language.English: "No users found."},
	"label.refresh_permissions": {language.French: "Actualiser les permissions", language.English: "Refresh permissions"},
	"label.back":                {language.French: "Retour", language.English: "Back"},
	"label.description":         {language.French: "Description", language.English: "Description"},
}

var supported = []language.Tag{language.French, language.English}

func buildCatalog() catalog.Catalog {
	builder := catalog.NewBuilder(catalog.Fallback(language.French))
	for _, set := range []map[string]map[language.Tag]string{entries, labels} {
		for key, translations := range set {
			for tag, text := range translations {
				_ = builder.SetString(tag, key, text)
			}
		}
	}
	return builder
}

var defaultCatalog = buildCatalog()

// Translator formats messages in one display language.
type Translator struct {
	printer *message.Printer
	tag     language.Tag
}

// New returns a Translator for lang, falling back to French.
func New(lang string) *Translator {
	tag := language.French
	if parsed, err := language.Parse(lang); err == nil {
		matcher := language.NewMatcher(supported)
		_, idx, conf := matcher.Match(parsed)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Translator{printer: message.NewPrinter(tag, message.Catalog(defaultCatalog)), tag: tag}
}

// T formats the message key with args.
func (t *Translator) T(key string, args ...any) string {
	if t == nil {
		return key
	}
	return t.printer.Sprintf(key, args...)
}

// Lang returns the BCP 47 tag in use.
func (t *Translator) Lang() string {
	return t.tag.String()
}
