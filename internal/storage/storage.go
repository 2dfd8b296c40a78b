// Package storage описывает контракт хранилища ссылок и фабрики кодов.
package storage

//go:generate mockgen -source=storage.go -destination=mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"

	"github.com/Totarae/firefly/internal/model"
)

var (
	// ErrNotFound запись не найдена (или удалена).
	ErrNotFound = errors.New("record not found")
	// ErrCodeTaken код уже занят, в том числе удалённой записью.
	ErrCodeTaken = errors.New("code already taken")
	// ErrDuplicate у пользователя уже есть живая запись с таким URL.
	ErrDuplicate = errors.New("url already shortened by user")
)

// Storage определяет интерфейс для работы с хранилищем URL.
//
// Все реализации обязаны гарантировать атомарность выдачи кода вместе со
// вставкой записи, атомарный инкремент кликов и уникальность кода по всей
// таблице, включая удалённые записи.
type Storage interface {
	// EnsureCodeFactory создаёт строку фабрики кодов, если её нет.
	EnsureCodeFactory(ctx context.Context) error
	// NextCode возвращает код, который получит следующая запись, ничего не сохраняя.
	NextCode(ctx context.Context) (string, error)

	// FindByCode возвращает живую запись по коду или ErrNotFound.
	FindByCode(ctx context.Context, code string) (*model.URL, error)
	// FindByUserURL возвращает живую запись пользователя с данным URL или ErrNotFound.
	FindByUserURL(ctx context.Context, user, url string) (*model.URL, error)
	// CodeExists сообщает, занят ли код какой-либо записью, включая удалённые.
	CodeExists(ctx context.Context, code string) (bool, error)

	// CreateWithCode сохраняет запись с уже заданным кодом.
	// Возвращает ErrCodeTaken или ErrDuplicate.
	CreateWithCode(ctx context.Context, rec *model.URL) error
	// CreateWithNextCode выдаёт код фабрики и сохраняет запись в одной транзакции.
	// Возвращает ErrCodeTaken при гонке с явным запросом кода или ErrDuplicate.
	CreateWithNextCode(ctx context.Context, rec *model.URL) error

	// IncrementClicks атомарно увеличивает счётчик переходов на единицу.
	IncrementClicks(ctx context.Context, code string) (*model.URL, error)
	// List возвращает записи согласно уже проверенным опциям.
	List(ctx context.Context, opts model.ListOptions) ([]*model.URL, error)
	// Delete помечает запись пользователя удалённой или возвращает ErrNotFound.
	Delete(ctx context.Context, code, user string) error

	CountURLs(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close()
}
