// internal/domain/messages.go
package domain

import "errors"

// UserMessage zamienia błąd na komunikat dla użytkownika (pt-BR).
// Tylko warstwa UI/API powinna z tego korzystać.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoOfflineCredential):
		return "Login offline não disponível. Você precisa fazer login online pelo menos uma vez neste dispositivo."
	case errors.Is(err, ErrWrongPassword):
		return "Usuário ou senha inválidos."
	case errors.Is(err, ErrStorageUnavailable):
		return "Armazenamento local indisponível. Libere espaço no dispositivo ou reinstale o aplicativo."
	case errors.Is(err, ErrSchemaMismatch):
		return "Os dados recebidos do servidor estão em formato inesperado. Os dados em cache foram mantidos."
	case errors.Is(err, ErrNetworkUnavailable):
		return "Sem conexão com o servidor. Os dados exibidos são do cache; reconecte para sincronizar."
	case errors.Is(err, ErrRemoteRejected):
		return "O servidor recusou a operação. Verifique os dados e tente novamente."
	case errors.Is(err, ErrNotFound):
		return "Nenhum dado em cache ainda. Conecte-se para sincronizar."
	case errors.Is(err, ErrInvalidOperation):
		return "Operação inválida."
	case errors.Is(err, ErrSyncInProgress):
		return "Sincronização em andamento. Aguarde."
	default:
		return "Ocorreu um erro inesperado. Tente novamente."
	}
}
