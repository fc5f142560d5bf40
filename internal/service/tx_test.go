package service

import "context"

type testTxRepos struct {
	chunks         ChunkRepositoryInterface
	correspondents CorrespondentRepositoryInterface
	messages       MessageRepositoryInterface
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Correspondents() CorrespondentRepositoryInterface {
	return t.correspondents
}

func (t *testTxRepos) Messages() MessageRepositoryInterface {
	return t.messages
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
