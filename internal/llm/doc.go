// Package llm implements the AI fallback tier. A BatchClassifier asks a
// language model to place unresolved transactions into a closed category
// vocabulary. Ollama, OpenAI and Gemini providers are supported, with retry,
// rate limiting and a short-lived result cache.
package llm
